package conf

import (
	"google.golang.org/protobuf/types/known/durationpb"
)

// Bootstrap is the root configuration object assembled by NewBootstrap.
type Bootstrap struct {
	Server     *Server
	Data       *Data
	Resilience *Resilience
	Notify     *Notify
	Log        *Log
}

// Server holds the listener configuration.
type Server struct {
	Http *Server_HTTP
	Grpc *Server_GRPC
}

type Server_HTTP struct {
	Network string
	Addr    string
	Timeout *durationpb.Duration
}

type Server_GRPC struct {
	Network string
	Addr    string
	Timeout *durationpb.Duration
}

// Data holds the storage collaborators. Database and Redis are optional:
// an empty source/addr runs the service with archival and caching
// disabled, since all resilience state is in-memory.
type Data struct {
	Database *Data_Database
	Redis    *Data_Redis
	Cache    *Data_Cache
}

type Data_Database struct {
	Driver string
	Source string
}

type Data_Redis struct {
	Network      string
	Addr         string
	ReadTimeout  *durationpb.Duration
	WriteTimeout *durationpb.Duration
}

// Data_Cache sizes the in-process tier of the two-tier cache.
type Data_Cache struct {
	Size int32
	Ttl  *durationpb.Duration
}

// Resilience configures the protection components.
type Resilience struct {
	Breaker   *Resilience_Breaker
	RateLimit *Resilience_RateLimit
	Alerts    *Resilience_Alerts
	Pool      *Resilience_Pool
	Cleanup   *Resilience_Cleanup
}

type Resilience_Breaker struct {
	FailureThreshold   int32
	SuccessThreshold   int32
	Timeout            *durationpb.Duration
	MonitorInterval    *durationpb.Duration
	EnableHealthChecks bool
}

type Resilience_RateLimit struct {
	Window      *durationpb.Duration
	MaxRequests int32
}

type Resilience_Alerts struct {
	MetricsWindow *durationpb.Duration
	MaxHistory    int32
}

type Resilience_Pool struct {
	MaxEvents            int32
	FailureRateThreshold float64
	SlowAcquisition      *durationpb.Duration
	SlowOperation        *durationpb.Duration
	ResetSchedule        string
}

type Resilience_Cleanup struct {
	Tick         *durationpb.Duration
	TaskInterval *durationpb.Duration
}

// Notify configures the outbound webhook that alert notifications are
// delivered to. An empty URL disables delivery.
type Notify struct {
	WebhookUrl string
	Timeout    *durationpb.Duration
}

// Log configures level and output format. OutputFile enables rotated
// file output in addition to stdout/stderr.
type Log struct {
	Level      string
	Format     string
	Env        string
	OutputFile string
}
