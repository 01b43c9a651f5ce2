package monit

import (
	"github.com/pkg/errors"

	"github.com/user/monitoring/internal/model"
)

type row = map[string]interface{}

func put[T any](r row, key string, v *T) {
	if v != nil {
		r[key] = *v
	}
}

// Map flattens a typed service record into the row of its table. Nested
// sections become prefixed columns and group is stored as groupname. Host
// records also yield one satellite row per port and icmp test.
func Map(rec model.ServiceReport) (*model.MappedService, error) {
	if rec == nil {
		return nil, errors.New("nil service report")
	}
	out := &model.MappedService{Table: rec.Kind().Table(), Row: commonRow(rec.Base(), rec.Kind())}
	r := out.Row

	switch s := rec.(type) {
	case *model.FilesystemService:
		put(r, "mode", s.Mode)
		put(r, "gid", s.GID)
		put(r, "uid", s.UID)
		put(r, "flags", s.Flags)
		if s.Block == nil {
			return nil, errors.Errorf("filesystem %q has no block section", s.Name)
		}
		usage(r, "block_", s.Block)
		if s.Inode != nil {
			usage(r, "inode_", s.Inode)
		}

	case *model.DirectoryService:
		put(r, "timestamp", s.Timestamp)
		put(r, "mode", s.Mode)
		put(r, "gid", s.GID)
		put(r, "uid", s.UID)

	case *model.FileService:
		put(r, "timestamp", s.Timestamp)
		put(r, "size", s.Size)
		put(r, "mode", s.Mode)
		put(r, "gid", s.GID)
		put(r, "uid", s.UID)

	case *model.ProcessService:
		put(r, "uptime", s.Uptime)
		put(r, "pid", s.PID)
		put(r, "ppid", s.PPID)
		put(r, "children", s.Children)
		if s.CPU != nil {
			put(r, "cpu_percent", s.CPU.Percent)
			put(r, "cpu_percenttotal", s.CPU.PercentTotal)
		}
		if s.Memory != nil {
			put(r, "memory_percent", s.Memory.Percent)
			put(r, "memory_percenttotal", s.Memory.PercentTotal)
			put(r, "memory_kilobyte", s.Memory.Kilobyte)
			put(r, "memory_kilobytetotal", s.Memory.KilobyteTotal)
		}

	case *model.HostService:
		for _, p := range s.PortList {
			pr := row{}
			put(pr, "type", p.Type)
			put(pr, "responsetime", p.ResponseTime)
			put(pr, "portnumber", p.PortNumber)
			put(pr, "request", p.Request)
			put(pr, "hostname", p.Hostname)
			put(pr, "protocol", p.Protocol)
			out.Ports = append(out.Ports, pr)
		}
		for _, p := range s.ICMPList {
			ir := row{}
			put(ir, "type", p.Type)
			put(ir, "responsetime", p.ResponseTime)
			out.ICMP = append(out.ICMP, ir)
		}

	case *model.SystemService:
		if sys := s.System; sys != nil {
			if sys.Load != nil {
				put(r, "load_avg01", sys.Load.Avg01)
				put(r, "load_avg05", sys.Load.Avg05)
				put(r, "load_avg15", sys.Load.Avg15)
			}
			if sys.CPU != nil {
				put(r, "cpu_user", sys.CPU.User)
				put(r, "cpu_system", sys.CPU.System)
				put(r, "cpu_wait", sys.CPU.Wait)
			}
			if sys.Memory != nil {
				put(r, "memory_percent", sys.Memory.Percent)
				put(r, "memory_kilobyte", sys.Memory.Kilobyte)
			}
		}

	default:
		return nil, errors.Wrapf(ErrUnknownServiceType, "record %T", rec)
	}
	return out, nil
}

func commonRow(c *model.ServiceCommon, kind model.ServiceType) row {
	r := row{
		"type":          int(kind),
		"name":          c.Name,
		"status":        c.Status,
		"monitormode":   c.MonitorMode,
		"monitor":       c.Monitor,
		"collected_sec": c.CollectedSec,
	}
	put(r, "groupname", c.Group)
	put(r, "status_message", c.StatusMessage)
	put(r, "pendingaction", c.PendingAction)
	return r
}

func usage(r row, prefix string, u *model.FilesystemUsage) {
	r[prefix+"percent"] = u.Percent
	r[prefix+"usage"] = u.Usage
	r[prefix+"total"] = u.Total
}

// MapServer turns the monit.server section into the monit table row.
// Platform fields are prefixed with platform_ and httpd fields are merged
// unprefixed. The sender's id becomes monitid.
func MapServer(s *model.MonitServer) row {
	r := row{
		"monitid":       s.ID,
		"localhostname": s.LocalHostname,
	}
	put(r, "incarnation", s.Incarnation)
	put(r, "version", s.Version)
	put(r, "uptime", s.Uptime)
	put(r, "poll", s.Poll)
	put(r, "startdelay", s.StartDelay)
	put(r, "controlfile", s.ControlFile)
	if p := s.Platform; p != nil {
		put(r, "platform_name", p.Name)
		put(r, "platform_release", p.Release)
		put(r, "platform_version", p.Version)
		put(r, "platform_machine", p.Machine)
		put(r, "platform_cpu", p.CPU)
		put(r, "platform_memory", p.Memory)
	}
	if h := s.HTTPD; h != nil {
		put(r, "address", h.Address)
		put(r, "port", h.Port)
		put(r, "ssl", h.SSL)
	}
	return r
}

// MapEvent turns an event into the event table row linked to serviceID.
// The service type is stored both as type and service_type.
func MapEvent(e *model.EventReport, serviceID int64) row {
	r := row{
		"service_id":    serviceID,
		"type":          int(e.Type),
		"service_type":  int(e.Type),
		"collected_sec": e.CollectedSec,
		"message":       e.Message,
	}
	put(r, "state", e.State)
	put(r, "action", e.Action)
	put(r, "groupname", e.Group)
	return r
}
