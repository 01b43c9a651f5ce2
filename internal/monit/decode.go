// Package monit turns decoded monit reports into typed records and flat
// table rows.
package monit

import (
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/cast"

	"github.com/user/monitoring/internal/model"
)

var (
	// ErrUnknownServiceType is returned for a missing or out-of-range type code.
	ErrUnknownServiceType = errors.New("unknown service type")
	// ErrNotMonitored is returned for services whose monitor flag is off.
	ErrNotMonitored = errors.New("service not monitored")
)

var validate = validator.New()

// ServiceType reads the type code of one servicelist entry.
func ServiceType(raw map[string]interface{}) (model.ServiceType, error) {
	v, ok := raw["type"]
	if !ok || v == nil {
		return 0, ErrUnknownServiceType
	}
	code, err := cast.ToIntE(v)
	if err != nil {
		return 0, errors.Wrapf(ErrUnknownServiceType, "type %v", v)
	}
	st := model.ServiceType(code)
	if !st.Valid() {
		return 0, errors.Wrapf(ErrUnknownServiceType, "type %d", code)
	}
	return st, nil
}

// Monitored reports whether the monitor flag of an entry is truthy.
func Monitored(raw map[string]interface{}) bool {
	return truthy(raw["monitor"])
}

func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case []interface{}:
		return len(t) > 0
	case map[string]interface{}:
		return len(t) > 0
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return true
	}
	return f != 0
}

// DecodeService turns one servicelist entry into its typed record.
func DecodeService(raw map[string]interface{}) (model.ServiceReport, error) {
	st, err := ServiceType(raw)
	if err != nil {
		return nil, err
	}
	if !Monitored(raw) {
		return nil, ErrNotMonitored
	}

	var rec model.ServiceReport
	switch st {
	case model.ServiceFilesystem:
		rec = &model.FilesystemService{}
	case model.ServiceDirectory:
		rec = &model.DirectoryService{}
	case model.ServiceFile:
		rec = &model.FileService{}
	case model.ServiceProcess:
		rec = &model.ProcessService{}
	case model.ServiceHost:
		rec = &model.HostService{}
	case model.ServiceSystem:
		rec = &model.SystemService{}
	}

	if err := decode(raw, rec); err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s service", st)
	}
	if err := validate.Struct(rec); err != nil {
		return nil, errors.Wrapf(err, "invalid %s service", st)
	}
	return rec, nil
}

// DecodeServer reads the monit.server section, falling back to monit.platform
// when the server carries no platform of its own.
func DecodeServer(monit map[string]interface{}) (*model.MonitServer, error) {
	raw, ok := monit["server"].(map[string]interface{})
	if !ok {
		return nil, errors.New("report has no monit.server section")
	}

	var srv model.MonitServer
	if err := decode(raw, &srv); err != nil {
		return nil, errors.Wrap(err, "failed to decode monit server")
	}
	if srv.Platform == nil {
		if p, ok := monit["platform"].(map[string]interface{}); ok {
			srv.Platform = &model.MonitPlatform{}
			if err := decode(p, srv.Platform); err != nil {
				return nil, errors.Wrap(err, "failed to decode monit platform")
			}
		}
	}
	if err := validate.Struct(&srv); err != nil {
		return nil, errors.Wrap(err, "invalid monit server")
	}
	return &srv, nil
}

// DecodeEvent reads the event section of a report.
func DecodeEvent(raw map[string]interface{}) (*model.EventReport, error) {
	if _, err := ServiceType(raw); err != nil {
		return nil, err
	}
	var evt model.EventReport
	if err := decode(raw, &evt); err != nil {
		return nil, errors.Wrap(err, "failed to decode event")
	}
	if err := validate.Struct(&evt); err != nil {
		return nil, errors.Wrap(err, "invalid event")
	}
	return &evt, nil
}

func decode(input interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}
