package model

import "fmt"

// ServiceType is the numeric service kind reported by monit.
type ServiceType int

const (
	ServiceFilesystem ServiceType = iota
	ServiceDirectory
	ServiceFile
	ServiceProcess
	ServiceHost
	ServiceSystem
)

var serviceTypeNames = [...]string{
	ServiceFilesystem: "filesystem",
	ServiceDirectory:  "directory",
	ServiceFile:       "file",
	ServiceProcess:    "process",
	ServiceHost:       "host",
	ServiceSystem:     "system",
}

// ServiceTypes returns every known service type in code order.
func ServiceTypes() []ServiceType {
	return []ServiceType{
		ServiceFilesystem, ServiceDirectory, ServiceFile,
		ServiceProcess, ServiceHost, ServiceSystem,
	}
}

// Valid reports whether t is one of the six known codes.
func (t ServiceType) Valid() bool {
	return t >= ServiceFilesystem && t <= ServiceSystem
}

func (t ServiceType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("unknown(%d)", int(t))
	}
	return serviceTypeNames[t]
}

// Table returns the name of the table holding reports of this type.
func (t ServiceType) Table() string {
	if !t.Valid() {
		return ""
	}
	return serviceTypeNames[t] + "_service"
}

// ParseServiceType resolves a type name such as "process".
func ParseServiceType(name string) (ServiceType, bool) {
	for i, n := range serviceTypeNames {
		if n == name {
			return ServiceType(i), true
		}
	}
	return 0, false
}

// ServiceReport is one typed service snapshot. The concrete type is one of
// FilesystemService, DirectoryService, FileService, ProcessService,
// HostService or SystemService.
type ServiceReport interface {
	Kind() ServiceType
	Base() *ServiceCommon
}

// ServiceCommon holds the fields shared by every service table.
type ServiceCommon struct {
	Type          ServiceType `mapstructure:"type" json:"type"`
	Name          string      `mapstructure:"name" json:"name" validate:"required"`
	Status        int         `mapstructure:"status" json:"status"`
	MonitorMode   int         `mapstructure:"monitormode" json:"monitormode"`
	Monitor       int         `mapstructure:"monitor" json:"monitor"`
	CollectedSec  int64       `mapstructure:"collected_sec" json:"collected_sec"`
	Group         *string     `mapstructure:"group" json:"group,omitempty"`
	StatusMessage *string     `mapstructure:"status_message" json:"status_message,omitempty"`
	PendingAction *int        `mapstructure:"pendingaction" json:"pendingaction,omitempty"`
}

func (c *ServiceCommon) Base() *ServiceCommon { return c }

// FilesystemService reports disk usage of a mounted filesystem.
type FilesystemService struct {
	ServiceCommon `mapstructure:",squash"`
	Mode          *int64           `mapstructure:"mode" json:"mode,omitempty"`
	GID           *int64           `mapstructure:"gid" json:"gid,omitempty"`
	UID           *int64           `mapstructure:"uid" json:"uid,omitempty"`
	Flags         *int64           `mapstructure:"flags" json:"flags,omitempty"`
	Block         *FilesystemUsage `mapstructure:"block" json:"block" validate:"required"`
	Inode         *FilesystemUsage `mapstructure:"inode" json:"inode,omitempty"`
}

// FilesystemUsage is a block or inode usage triple.
type FilesystemUsage struct {
	Percent float64 `mapstructure:"percent" json:"percent"`
	Usage   float64 `mapstructure:"usage" json:"usage"`
	Total   float64 `mapstructure:"total" json:"total"`
}

func (*FilesystemService) Kind() ServiceType { return ServiceFilesystem }

// DirectoryService reports the attributes of a directory.
type DirectoryService struct {
	ServiceCommon `mapstructure:",squash"`
	Timestamp     *int64 `mapstructure:"timestamp" json:"timestamp,omitempty"`
	Mode          *int64 `mapstructure:"mode" json:"mode,omitempty"`
	GID           *int64 `mapstructure:"gid" json:"gid,omitempty"`
	UID           *int64 `mapstructure:"uid" json:"uid,omitempty"`
}

func (*DirectoryService) Kind() ServiceType { return ServiceDirectory }

// FileService reports the attributes of a regular file.
type FileService struct {
	ServiceCommon `mapstructure:",squash"`
	Timestamp     *int64 `mapstructure:"timestamp" json:"timestamp,omitempty"`
	Size          *int64 `mapstructure:"size" json:"size,omitempty"`
	Mode          *int64 `mapstructure:"mode" json:"mode,omitempty"`
	GID           *int64 `mapstructure:"gid" json:"gid,omitempty"`
	UID           *int64 `mapstructure:"uid" json:"uid,omitempty"`
}

func (*FileService) Kind() ServiceType { return ServiceFile }

// ProcessService reports a supervised process.
type ProcessService struct {
	ServiceCommon `mapstructure:",squash"`
	Uptime        *int64         `mapstructure:"uptime" json:"uptime,omitempty"`
	PID           *int           `mapstructure:"pid" json:"pid" validate:"required"`
	PPID          *int           `mapstructure:"ppid" json:"ppid,omitempty"`
	Children      *int           `mapstructure:"children" json:"children,omitempty"`
	CPU           *ProcessCPU    `mapstructure:"cpu" json:"cpu,omitempty"`
	Memory        *ProcessMemory `mapstructure:"memory" json:"memory,omitempty"`
}

// ProcessCPU is the cpu section of a process report.
type ProcessCPU struct {
	Percent      *float64 `mapstructure:"percent" json:"percent,omitempty"`
	PercentTotal *float64 `mapstructure:"percenttotal" json:"percenttotal,omitempty"`
}

// ProcessMemory is the memory section of a process report.
type ProcessMemory struct {
	Percent       *float64 `mapstructure:"percent" json:"percent,omitempty"`
	PercentTotal  *float64 `mapstructure:"percenttotal" json:"percenttotal,omitempty"`
	Kilobyte      *float64 `mapstructure:"kilobyte" json:"kilobyte,omitempty"`
	KilobyteTotal *float64 `mapstructure:"kilobytetotal" json:"kilobytetotal,omitempty"`
}

func (*ProcessService) Kind() ServiceType { return ServiceProcess }

// HostService reports a remote host check with its port and icmp tests.
type HostService struct {
	ServiceCommon `mapstructure:",squash"`
	PortList      []HostPort `mapstructure:"portlist" json:"portlist,omitempty"`
	ICMPList      []HostIcmp `mapstructure:"icmplist" json:"icmplist,omitempty"`
}

func (*HostService) Kind() ServiceType { return ServiceHost }

// HostPort is one port test of a host check.
type HostPort struct {
	ID           int64    `mapstructure:"-" json:"id"`
	HostID       int64    `mapstructure:"-" json:"host_id"`
	Type         *string  `mapstructure:"type" json:"type,omitempty"`
	ResponseTime *float64 `mapstructure:"responsetime" json:"responsetime,omitempty"`
	PortNumber   *int     `mapstructure:"portnumber" json:"portnumber,omitempty"`
	Request      *string  `mapstructure:"request" json:"request,omitempty"`
	Hostname     *string  `mapstructure:"hostname" json:"hostname,omitempty"`
	Protocol     *string  `mapstructure:"protocol" json:"protocol,omitempty"`
}

// HostIcmp is one icmp test of a host check.
type HostIcmp struct {
	ID           int64    `mapstructure:"-" json:"id"`
	HostID       int64    `mapstructure:"-" json:"host_id"`
	Type         *string  `mapstructure:"type" json:"type,omitempty"`
	ResponseTime *float64 `mapstructure:"responsetime" json:"responsetime,omitempty"`
}

// SystemService reports whole-machine load, cpu and memory.
type SystemService struct {
	ServiceCommon `mapstructure:",squash"`
	System        *SystemMetrics `mapstructure:"system" json:"system,omitempty"`
}

// SystemMetrics is the nested system section of a system report.
type SystemMetrics struct {
	Load   *SystemLoad   `mapstructure:"load" json:"load,omitempty"`
	CPU    *SystemCPU    `mapstructure:"cpu" json:"cpu,omitempty"`
	Memory *SystemMemory `mapstructure:"memory" json:"memory,omitempty"`
}

type SystemLoad struct {
	Avg01 *float64 `mapstructure:"avg01" json:"avg01,omitempty"`
	Avg05 *float64 `mapstructure:"avg05" json:"avg05,omitempty"`
	Avg15 *float64 `mapstructure:"avg15" json:"avg15,omitempty"`
}

type SystemCPU struct {
	User   *float64 `mapstructure:"user" json:"user,omitempty"`
	System *float64 `mapstructure:"system" json:"system,omitempty"`
	Wait   *float64 `mapstructure:"wait" json:"wait,omitempty"`
}

type SystemMemory struct {
	Percent  *float64 `mapstructure:"percent" json:"percent,omitempty"`
	Kilobyte *float64 `mapstructure:"kilobyte" json:"kilobyte,omitempty"`
}

func (*SystemService) Kind() ServiceType { return ServiceSystem }

// ServiceRow is the stored summary of one service report.
type ServiceRow struct {
	ID            int64       `json:"id"`
	MonitID       int64       `json:"monit_id"`
	Type          ServiceType `json:"type"`
	Name          string      `json:"name"`
	Status        int         `json:"status"`
	Monitor       int         `json:"monitor"`
	CollectedSec  int64       `json:"collected_sec"`
	GroupName     string      `json:"groupname,omitempty"`
	StatusMessage string      `json:"status_message,omitempty"`
}

// MappedService is a service report flattened into table rows. Ports and
// ICMP are only set for host reports and receive host_id on insert.
type MappedService struct {
	Table string
	Row   map[string]interface{}
	Ports []map[string]interface{}
	ICMP  []map[string]interface{}
}
