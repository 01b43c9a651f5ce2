// Package model defines core data structures for the monitoring service.
package model

import (
	"fmt"
	"time"
)

// MonitServer is the server section of a monit report, with the platform
// and httpd sections it carries.
type MonitServer struct {
	ID            string         `mapstructure:"id" validate:"required"`
	Incarnation   *int64         `mapstructure:"incarnation"`
	Version       *string        `mapstructure:"version"`
	Uptime        *int64         `mapstructure:"uptime"`
	Poll          *int64         `mapstructure:"poll"`
	StartDelay    *int64         `mapstructure:"startdelay"`
	LocalHostname string         `mapstructure:"localhostname" validate:"required"`
	ControlFile   *string        `mapstructure:"controlfile"`
	Platform      *MonitPlatform `mapstructure:"platform"`
	HTTPD         *MonitHTTPD    `mapstructure:"httpd"`
}

// MonitPlatform describes the host monit runs on.
type MonitPlatform struct {
	Name    *string `mapstructure:"name"`
	Release *string `mapstructure:"release"`
	Version *string `mapstructure:"version"`
	Machine *string `mapstructure:"machine"`
	CPU     *int64  `mapstructure:"cpu"`
	Memory  *string `mapstructure:"memory"`
}

// MonitHTTPD describes monit's embedded web server.
type MonitHTTPD struct {
	Address *string `mapstructure:"address"`
	Port    *int64  `mapstructure:"port"`
	SSL     *int64  `mapstructure:"ssl"`
}

// MonitInstance is one stored monit daemon.
type MonitInstance struct {
	ID              int64  `json:"id"`
	DBVersion       int    `json:"db_version"`
	MonitID         string `json:"monitid"`
	LocalHostname   string `json:"localhostname"`
	Address         string `json:"address,omitempty"`
	Port            int64  `json:"port,omitempty"`
	SSL             int64  `json:"ssl"`
	Uptime          int64  `json:"uptime"`
	UptimeFormatted string `json:"uptime_formatted"`
	Incarnation     int64  `json:"incarnation"`
	Version         string `json:"version,omitempty"`
	PlatformName    string `json:"platform_name,omitempty"`
	PlatformMachine string `json:"platform_machine,omitempty"`
	PlatformVersion string `json:"platform_version,omitempty"`
	PlatformMemory  string `json:"platform_memory,omitempty"`
	PlatformRelease string `json:"platform_release,omitempty"`
	PlatformCPU     int64  `json:"platform_cpu,omitempty"`
	StartDelay      int64  `json:"startdelay"`
	ControlFile     string `json:"controlfile,omitempty"`
	Poll            int64  `json:"poll"`
}

// EventReport is the event section of an inbound monit report.
type EventReport struct {
	Service      string      `mapstructure:"service" validate:"required"`
	Type         ServiceType `mapstructure:"type"`
	CollectedSec int64       `mapstructure:"collected_sec"`
	State        *int        `mapstructure:"state"`
	Action       *int        `mapstructure:"action"`
	Message      string      `mapstructure:"message"`
	Group        *string     `mapstructure:"group"`
}

// Event is a stored event linked to a service row.
type Event struct {
	ID           int64       `json:"id"`
	ServiceID    int64       `json:"service_id"`
	Type         ServiceType `json:"type"`
	CollectedSec int64       `json:"collected_sec"`
	State        int         `json:"state"`
	Action       int         `json:"action"`
	Message      string      `json:"message"`
	GroupName    string      `json:"groupname,omitempty"`
}

// CollectedAt returns the event time.
func (e Event) CollectedAt() time.Time {
	return time.Unix(e.CollectedSec, 0).UTC()
}

// TimelineEntry is an event resolved to its service and monit instance.
type TimelineEntry struct {
	Event    Event          `json:"event"`
	Service  *ServiceRow    `json:"service,omitempty"`
	Instance *MonitInstance `json:"instance,omitempty"`
	// Author is monit@<localhostname>, or monit@unknown.
	Author string `json:"author"`
}

// Title returns a one-line heading for the entry.
func (t TimelineEntry) Title() string {
	return fmt.Sprintf("New %s event", t.Event.Type)
}

// Description renders the entry the way a timeline shows it.
func (t TimelineEntry) Description() string {
	host, service, kind := "unknown", "unknown", "unknown"
	if t.Instance != nil {
		host = t.Instance.LocalHostname
	}
	if t.Service != nil {
		service = t.Service.Name
		kind = t.Event.Type.String()
	}
	return fmt.Sprintf("Event on %s for service %s (type %s) %s", host, service, kind, t.Event.Message)
}

// DaemonStatus represents the current state of the daemon.
type DaemonStatus struct {
	Running      bool         `json:"running"`
	PID          int          `json:"pid"`
	StartTime    time.Time    `json:"start_time"`
	Uptime       string       `json:"uptime"`
	Instances    int          `json:"instances"`
	Events       int          `json:"events"`
	MuninVersion string       `json:"munin_version,omitempty"`
	LastCheck    time.Time    `json:"last_check"`
	JobsRunning  int          `json:"jobs_running"`
	Jobs         []JobStatus  `json:"jobs,omitempty"`
	HTTPD        []HTTPDCheck `json:"httpd,omitempty"`
}

// HTTPDCheck is the result of dialing the embedded web server of one monit
// instance.
type HTTPDCheck struct {
	Host      string    `json:"host"`
	Addr      string    `json:"addr"`
	Reachable bool      `json:"reachable"`
	LatencyMs float64   `json:"latency_ms"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// JobStatus represents the status of a scheduled job.
type JobStatus struct {
	Name       string    `json:"name"`
	LastRun    time.Time `json:"last_run"`
	NextRun    time.Time `json:"next_run"`
	LastResult string    `json:"last_result"`
	ErrorCount int       `json:"error_count"`
	Running    bool      `json:"running"`
}

// ReportOptions defines options for report generation.
type ReportOptions struct {
	Since          time.Time `json:"since"`
	Until          time.Time `json:"until"`
	OutputPath     string    `json:"output_path"`
	IncludeEvents  bool      `json:"include_events"`
	IncludeDiagram bool      `json:"include_diagram"`
}
