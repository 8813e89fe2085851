package syncapi

import (
	"encoding/json"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// ShareRequest carries the payload in its tagged form
// {"type": ..., "data": ...}.
type ShareRequest struct {
	CabinetID      string
	TargetID       string
	PatientLocalID string
	Permission     string
	TTLSeconds     int64
	IdempotencyKey string
	Payload        json.RawMessage
}

func (m *ShareRequest) marshalWire(b []byte) ([]byte, error) {
	b = appendString(b, 1, m.CabinetID)
	b = appendString(b, 2, m.TargetID)
	b = appendString(b, 3, m.PatientLocalID)
	b = appendString(b, 4, m.Permission)
	b = appendInt64(b, 5, m.TTLSeconds)
	b = appendString(b, 6, m.IdempotencyKey)
	b = appendBytes(b, 7, m.Payload)
	return b, nil
}

func (m *ShareRequest) unmarshalWire(b []byte) error {
	*m = ShareRequest{}
	return walkFields(b, func(f field) error {
		switch f.num {
		case 1:
			return f.readString(&m.CabinetID)
		case 2:
			return f.readString(&m.TargetID)
		case 3:
			return f.readString(&m.PatientLocalID)
		case 4:
			return f.readString(&m.Permission)
		case 5:
			return f.readInt64(&m.TTLSeconds)
		case 6:
			return f.readString(&m.IdempotencyKey)
		case 7:
			return f.readBytes((*[]byte)(&m.Payload))
		}
		return nil
	})
}

type ShareResponse struct {
	ID        string
	ExpiresAt time.Time
	Reused    bool
}

func (m *ShareResponse) marshalWire(b []byte) ([]byte, error) {
	b = appendString(b, 1, m.ID)
	b, err := appendTime(b, 2, m.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return appendBool(b, 3, m.Reused), nil
}

func (m *ShareResponse) unmarshalWire(b []byte) error {
	*m = ShareResponse{}
	return walkFields(b, func(f field) error {
		switch f.num {
		case 1:
			return f.readString(&m.ID)
		case 2:
			return f.readTime(&m.ExpiresAt)
		case 3:
			return f.readBool(&m.Reused)
		}
		return nil
	})
}

type RetrieveRequest struct {
	ID string
}

func (m *RetrieveRequest) marshalWire(b []byte) ([]byte, error) {
	return appendString(b, 1, m.ID), nil
}

func (m *RetrieveRequest) unmarshalWire(b []byte) error {
	*m = RetrieveRequest{}
	return walkFields(b, func(f field) error {
		if f.num == 1 {
			return f.readString(&m.ID)
		}
		return nil
	})
}

type RetrieveResponse struct {
	SyncType string
	Payload  json.RawMessage
}

func (m *RetrieveResponse) marshalWire(b []byte) ([]byte, error) {
	b = appendString(b, 1, m.SyncType)
	return appendBytes(b, 2, m.Payload), nil
}

func (m *RetrieveResponse) unmarshalWire(b []byte) error {
	*m = RetrieveResponse{}
	return walkFields(b, func(f field) error {
		switch f.num {
		case 1:
			return f.readString(&m.SyncType)
		case 2:
			return f.readBytes((*[]byte)(&m.Payload))
		}
		return nil
	})
}

type ListRequest struct{}

func (m *ListRequest) marshalWire(b []byte) ([]byte, error) { return b, nil }

func (m *ListRequest) unmarshalWire(b []byte) error {
	return walkFields(b, func(field) error { return nil })
}

// PackageInfo is the plaintext metadata of one sync package addressed to
// the caller.
type PackageInfo struct {
	ID                 string
	CabinetID          string
	OwnerID            string
	PatientFingerprint string
	SyncType           string
	Permission         string
	ExpiresAt          time.Time
	LastSyncedAt       *time.Time
	CreatedAt          time.Time
}

func (m *PackageInfo) marshalWire(b []byte) ([]byte, error) {
	b = appendString(b, 1, m.ID)
	b = appendString(b, 2, m.CabinetID)
	b = appendString(b, 3, m.OwnerID)
	b = appendString(b, 4, m.PatientFingerprint)
	b = appendString(b, 5, m.SyncType)
	b = appendString(b, 6, m.Permission)

	b, err := appendTime(b, 7, m.ExpiresAt)
	if err != nil {
		return nil, err
	}
	if m.LastSyncedAt != nil {
		if b, err = appendTime(b, 8, *m.LastSyncedAt); err != nil {
			return nil, err
		}
	}
	return appendTime(b, 9, m.CreatedAt)
}

func (m *PackageInfo) unmarshalWire(b []byte) error {
	*m = PackageInfo{}
	return walkFields(b, func(f field) error {
		switch f.num {
		case 1:
			return f.readString(&m.ID)
		case 2:
			return f.readString(&m.CabinetID)
		case 3:
			return f.readString(&m.OwnerID)
		case 4:
			return f.readString(&m.PatientFingerprint)
		case 5:
			return f.readString(&m.SyncType)
		case 6:
			return f.readString(&m.Permission)
		case 7:
			return f.readTime(&m.ExpiresAt)
		case 8:
			var t time.Time
			if err := f.readTime(&t); err != nil {
				return err
			}
			m.LastSyncedAt = &t
		case 9:
			return f.readTime(&m.CreatedAt)
		}
		return nil
	})
}

type ListResponse struct {
	Packages []PackageInfo
}

func (m *ListResponse) marshalWire(b []byte) ([]byte, error) {
	var err error
	for i := range m.Packages {
		if b, err = appendMessage(b, 1, &m.Packages[i]); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (m *ListResponse) unmarshalWire(b []byte) error {
	*m = ListResponse{}
	return walkFields(b, func(f field) error {
		if f.num != 1 {
			return nil
		}
		if err := f.want(protowire.BytesType); err != nil {
			return err
		}
		var p PackageInfo
		if err := p.unmarshalWire(f.bytes); err != nil {
			return err
		}
		m.Packages = append(m.Packages, p)
		return nil
	})
}

type RevokeRequest struct {
	ID string
}

func (m *RevokeRequest) marshalWire(b []byte) ([]byte, error) {
	return appendString(b, 1, m.ID), nil
}

func (m *RevokeRequest) unmarshalWire(b []byte) error {
	*m = RevokeRequest{}
	return walkFields(b, func(f field) error {
		if f.num == 1 {
			return f.readString(&m.ID)
		}
		return nil
	})
}

type RevokeResponse struct{}

func (m *RevokeResponse) marshalWire(b []byte) ([]byte, error) { return b, nil }

func (m *RevokeResponse) unmarshalWire(b []byte) error {
	return walkFields(b, func(field) error { return nil })
}

type PingRequest struct{}

func (m *PingRequest) marshalWire(b []byte) ([]byte, error) { return b, nil }

func (m *PingRequest) unmarshalWire(b []byte) error {
	return walkFields(b, func(field) error { return nil })
}

type PingResponse struct {
	Status string
}

func (m *PingResponse) marshalWire(b []byte) ([]byte, error) {
	return appendString(b, 1, m.Status), nil
}

func (m *PingResponse) unmarshalWire(b []byte) error {
	*m = PingResponse{}
	return walkFields(b, func(f field) error {
		if f.num == 1 {
			return f.readString(&m.Status)
		}
		return nil
	})
}
