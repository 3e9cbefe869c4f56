package remote

import "github.com/mschirtzinger/timekeep/internal/config"

// cloudBackend talks to the hosted worklog service.
type cloudBackend struct {
	httpAPI
}

func newCloudBackend() *cloudBackend {
	return &cloudBackend{httpAPI{
		name:   config.InstanceCloud,
		base:   cloudBase,
		client: newRetryClient(),
	}}
}

func cloudBase(opts config.Options) string {
	return "https://api." + opts.Domain + "/v4"
}

func (b *cloudBackend) Domains(opts config.Options) []string {
	if opts.Domain == "" {
		return nil
	}
	return []string{"https://api." + opts.Domain + "/"}
}
