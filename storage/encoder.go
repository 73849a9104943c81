package storage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
)

const (
	profileFormatVersionCurrent = 2
	profileFormatVersionV1      = 1
)

// ErrProfileCorrupt is returned when a stored profile blob cannot be decoded.
var ErrProfileCorrupt = errors.New("stored profile corrupt")

// EncodeProfile serializes p into the current binary profile format.
//
// Layout (v2): version byte, then ID, Name, Email and AvatarURL, each as a
// big-endian uint16 length followed by the raw bytes.
func EncodeProfile(p *Profile) ([]byte, error) {
	if p == nil {
		return nil, errors.New("nil profile")
	}
	if p.ID == "" {
		return nil, errors.New("profile id required")
	}

	var buf bytes.Buffer
	buf.WriteByte(profileFormatVersionCurrent)

	for _, field := range []string{p.ID, p.Name, p.Email, p.AvatarURL} {
		if err := writeString(&buf, field); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// DecodeProfile parses a blob written by any supported format version.
// v1 blobs carry no avatar URL.
func DecodeProfile(data []byte) (*Profile, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, ErrProfileCorrupt
	}
	if version != profileFormatVersionCurrent && version != profileFormatVersionV1 {
		return nil, errors.New("invalid profile version")
	}

	p := &Profile{}
	if p.ID, err = readString(reader); err != nil {
		return nil, err
	}
	if p.Name, err = readString(reader); err != nil {
		return nil, err
	}
	if p.Email, err = readString(reader); err != nil {
		return nil, err
	}
	if version == profileFormatVersionCurrent {
		if p.AvatarURL, err = readString(reader); err != nil {
			return nil, err
		}
	}
	if reader.Len() != 0 {
		return nil, ErrProfileCorrupt
	}
	if p.ID == "" {
		return nil, ErrProfileCorrupt
	}

	return p, nil
}

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > math.MaxUint16 {
		return errors.New("profile field too long")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

func readString(r *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", ErrProfileCorrupt
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return "", ErrProfileCorrupt
	}
	return string(out), nil
}
