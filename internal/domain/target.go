package domain

// AdapterKind identifies which platform adapter serves a target.
type AdapterKind string

const (
	AdapterDokploy    AdapterKind = "dokploy"
	AdapterNorthflank AdapterKind = "northflank"
)

// Target is one deployment destination: a hosted application on a platform.
// Endpoint and AppID address the application through the platform API;
// TokenEnv names the environment variable holding the API credential (the
// credential itself is never persisted). LastApplied is mutated only after
// an apply confirmed through the adapter.
type Target struct {
	Name        string
	Kind        AdapterKind
	Endpoint    string
	AppID       string
	TokenEnv    string
	LastApplied string
}
