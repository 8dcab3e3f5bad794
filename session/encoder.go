package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	snapshotFormatVersionCurrent = 2
	snapshotFormatVersionV1      = 1
)

// CurrentSchemaVersion is the schema byte written by [Encode].
const CurrentSchemaVersion = snapshotFormatVersionCurrent

// Snapshot is the persisted form of an authenticated [Session].
type Snapshot struct {
	SchemaVersion uint8
	Session       Session
	// SavedAt is the unix time the snapshot was written. Zero for v1 blobs.
	SavedAt int64
}

// Encode serializes an authenticated session snapshot.
//
// Layout (v2): version | uid len u8 | uid | name len u16 | name |
// email len u16 | email | role len u8 | role | points u32 | savedAt i64.
// v1 blobs omit email and savedAt.
func Encode(s *Snapshot) ([]byte, error) {
	if s == nil {
		return nil, errors.New("nil snapshot")
	}
	sess := s.Session
	if !sess.Authenticated || sess.UserID == "" {
		return nil, errors.New("snapshot requires an authenticated session")
	}
	if !sess.Role.Valid() {
		return nil, ErrUnknownRole
	}

	var buf bytes.Buffer
	buf.WriteByte(snapshotFormatVersionCurrent)

	if len(sess.UserID) > math.MaxUint8 {
		return nil, errors.New("userID too long")
	}
	buf.WriteByte(byte(len(sess.UserID)))
	buf.WriteString(sess.UserID)

	if err := writeString16(&buf, sess.DisplayName, "displayName"); err != nil {
		return nil, err
	}
	if err := writeString16(&buf, sess.Email, "email"); err != nil {
		return nil, err
	}

	if len(sess.Role) > math.MaxUint8 {
		return nil, errors.New("role too long")
	}
	buf.WriteByte(byte(len(sess.Role)))
	buf.WriteString(string(sess.Role))

	if err := binary.Write(&buf, binary.BigEndian, sess.Points); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.SavedAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses a snapshot blob written by any supported schema version.
// Older versions are migrated in memory; SchemaVersion reports what was read.
func Decode(data []byte) (*Snapshot, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != snapshotFormatVersionCurrent && version != snapshotFormatVersionV1 {
		return nil, fmt.Errorf("unsupported snapshot schema version %d", version)
	}

	s := &Snapshot{SchemaVersion: version}

	userLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	userID := make([]byte, userLen)
	if _, err := io.ReadFull(reader, userID); err != nil {
		return nil, err
	}
	s.Session.UserID = string(userID)

	if s.Session.DisplayName, err = readString16(reader); err != nil {
		return nil, err
	}
	if version == snapshotFormatVersionCurrent {
		if s.Session.Email, err = readString16(reader); err != nil {
			return nil, err
		}
	}

	roleLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	role := make([]byte, roleLen)
	if _, err := io.ReadFull(reader, role); err != nil {
		return nil, err
	}
	parsed, err := ParseRole(string(role))
	if err != nil {
		return nil, err
	}
	s.Session.Role = parsed

	if err := binary.Read(reader, binary.BigEndian, &s.Session.Points); err != nil {
		return nil, err
	}
	if version == snapshotFormatVersionCurrent {
		if err := binary.Read(reader, binary.BigEndian, &s.SavedAt); err != nil {
			return nil, err
		}
	}

	if s.Session.UserID == "" {
		return nil, errors.New("snapshot missing userID")
	}
	s.Session.Authenticated = true

	return s, nil
}

func writeString16(buf *bytes.Buffer, v, field string) error {
	if len(v) > math.MaxUint16 {
		return fmt.Errorf("%s too long", field)
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(v))); err != nil {
		return err
	}
	buf.WriteString(v)
	return nil
}

func readString16(r *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	raw := make([]byte, n)
	if _, err := io.ReadFull(r, raw); err != nil {
		return "", err
	}
	return string(raw), nil
}
