package remote

import "github.com/mschirtzinger/timekeep/internal/config"

// datacenterBackend talks to a self-hosted tracker instance.
type datacenterBackend struct {
	httpAPI
}

func newDatacenterBackend() *datacenterBackend {
	return &datacenterBackend{httpAPI{
		name:   config.InstanceDatacenter,
		base:   datacenterBase,
		client: newRetryClient(),
	}}
}

func datacenterBase(opts config.Options) string {
	return "https://" + opts.Domain + "/rest/timekeep/1.0"
}

func (b *datacenterBackend) Domains(opts config.Options) []string {
	if opts.Domain == "" {
		return nil
	}
	return []string{"https://" + opts.Domain + "/"}
}
