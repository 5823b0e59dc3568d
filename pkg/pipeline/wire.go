package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/wdm0006/labeletl/pkg/config"
	"github.com/wdm0006/labeletl/pkg/publish"
)

// FromConfig builds a Runner with every publisher the configuration enables.
func FromConfig(cfg *config.Config, logger *slog.Logger) (*Runner, error) {
	var pubs []publish.Publisher
	if oc := cfg.ObjectStore; oc.Enabled {
		store, err := publish.NewObjectStore(publish.ObjectStoreConfig{
			Endpoint:     oc.Endpoint,
			AccessKey:    oc.AccessKey,
			SecretKey:    oc.SecretKey,
			Bucket:       oc.Bucket,
			Prefix:       oc.Prefix,
			Region:       oc.Region,
			UseSSL:       oc.UseSSL,
			CreateBucket: oc.CreateBucket,
		})
		if err != nil {
			return nil, fmt.Errorf("object store: %w", err)
		}
		pubs = append(pubs, store)
	}
	return New(cfg.Pipeline, logger, pubs...), nil
}
