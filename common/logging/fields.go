package logging

import "log/slog"

// Field names shared by every service so log queries stay stable.
const (
	FieldService    = "service"
	FieldRequestID  = "request_id"
	FieldRecordID   = "record_id"
	FieldEventType  = "event_type"
	FieldTripID     = "trip_id"
	FieldUserID     = "user_id"
	FieldErrorKind  = "error_kind"
	FieldError      = "error"
	FieldSubject    = "subject"
	FieldBackend    = "backend"
	FieldRemoteAddr = "remote_addr"
	FieldDuration   = "duration_ms"
)

func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

func RecordID(id string) slog.Attr {
	return slog.String(FieldRecordID, id)
}

func EventType(t string) slog.Attr {
	return slog.String(FieldEventType, t)
}

// TripID logs the trip id, or an empty string when the event has no trip.
func TripID(id *string) slog.Attr {
	if id == nil {
		return slog.String(FieldTripID, "")
	}
	return slog.String(FieldTripID, *id)
}

func ErrorKind(kind string) slog.Attr {
	return slog.String(FieldErrorKind, kind)
}

// Error returns a slog attribute for err. A nil error logs as empty.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}

func Subject(s string) slog.Attr {
	return slog.String(FieldSubject, s)
}

func Backend(name string) slog.Attr {
	return slog.String(FieldBackend, name)
}

func RemoteAddr(addr string) slog.Attr {
	return slog.String(FieldRemoteAddr, addr)
}

func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}
