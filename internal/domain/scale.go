package domain

import "sort"

// Credentials identify a cloud project and the single scale it reads.
type Credentials struct {
	AccessID     string
	AccessSecret string
	DeviceID     string
	Region       string
}

// RawProperty is one attribute as reported by the vendor shadow endpoint.
type RawProperty struct {
	Code  string `json:"code"`
	Value any    `json:"value"`
	Type  string `json:"type"`
	Time  int64  `json:"time"`
}

// PropertyRecord is the normalized form of a RawProperty.
type PropertyRecord struct {
	Value      any    `json:"value"`
	Timestamp  int64  `json:"timestamp"`
	Type       string `json:"type"`
	LastUpdate string `json:"last_update"`
}

// DeviceSnapshot maps property codes to their records for one fetch cycle.
// A snapshot is replaced wholesale and must not be mutated once published.
type DeviceSnapshot map[string]PropertyRecord

func (s DeviceSnapshot) Get(code string) (PropertyRecord, bool) {
	rec, ok := s[code]
	return rec, ok
}

// Codes returns the property codes in lexical order.
func (s DeviceSnapshot) Codes() []string {
	codes := make([]string, 0, len(s))
	for code := range s {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

func (s DeviceSnapshot) Clone() DeviceSnapshot {
	if s == nil {
		return nil
	}
	out := make(DeviceSnapshot, len(s))
	for code, rec := range s {
		out[code] = rec
	}
	return out
}
