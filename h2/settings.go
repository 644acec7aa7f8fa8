package h2

import "encoding/binary"

// SettingID identifies a SETTINGS parameter, RFC 7540 §6.5.2.
type SettingID uint16

const (
	SettingHeaderTableSize      SettingID = 0x1
	SettingEnablePush           SettingID = 0x2
	SettingMaxConcurrentStreams SettingID = 0x3
	SettingInitialWindowSize    SettingID = 0x4
	SettingMaxFrameSize         SettingID = 0x5
	SettingMaxHeaderListSize    SettingID = 0x6
)

// Settings holds one side's view of the six RFC-defined SETTINGS
// parameters, each defaulting per §6.5.2.
type Settings struct {
	HeaderTableSize      uint32
	EnablePush           bool
	MaxConcurrentStreams uint32 // 0 here means "unbounded"; wire value absent means the same
	InitialWindowSize    uint32
	MaxFrameSize         uint32
	MaxHeaderListSize    uint32 // 0 means unbounded
}

// DefaultSettings returns the RFC-mandated initial values.
func DefaultSettings() Settings {
	return Settings{
		HeaderTableSize:      4096,
		EnablePush:           true,
		MaxConcurrentStreams: 0,
		InitialWindowSize:    65535,
		MaxFrameSize:         DefaultMaxFrameSize,
		MaxHeaderListSize:    0,
	}
}

// EncodeSettingsPayload serializes the given (id, value) pairs into a
// SETTINGS frame payload. Which settings to advertise is a connection-
// construction decision the caller makes; Settings itself only tracks the
// resulting state.
func EncodeSettingsPayload(pairs []SettingPair) []byte {
	buf := make([]byte, 6*len(pairs))
	for i, p := range pairs {
		binary.BigEndian.PutUint16(buf[i*6:], uint16(p.ID))
		binary.BigEndian.PutUint32(buf[i*6+2:], p.Value)
	}
	return buf
}

// SettingPair is one (identifier, value) entry in a SETTINGS frame.
type SettingPair struct {
	ID    SettingID
	Value uint32
}

// DecodeSettingsPayload parses a SETTINGS frame payload into pairs.
// Payloads whose length is not a multiple of 6 are a FRAME_SIZE_ERROR.
func DecodeSettingsPayload(payload []byte) ([]SettingPair, error) {
	if len(payload)%6 != 0 {
		return nil, connErrorf(ErrCodeFrameSize, "SETTINGS payload length %d is not a multiple of 6", len(payload))
	}
	pairs := make([]SettingPair, 0, len(payload)/6)
	for i := 0; i < len(payload); i += 6 {
		pairs = append(pairs, SettingPair{
			ID:    SettingID(binary.BigEndian.Uint16(payload[i:])),
			Value: binary.BigEndian.Uint32(payload[i+2:]),
		})
	}
	return pairs, nil
}

// Apply folds a decoded SETTINGS frame's pairs into s, returning the signed
// delta applied to InitialWindowSize (0 if unchanged) so the caller can
// retroactively adjust open streams' send windows per spec.md §4.4.
// Unknown setting IDs are ignored per RFC 7540 §6.5.2.
func (s *Settings) Apply(pairs []SettingPair) (windowDelta int64, err error) {
	for _, p := range pairs {
		switch p.ID {
		case SettingHeaderTableSize:
			s.HeaderTableSize = p.Value
		case SettingEnablePush:
			if p.Value > 1 {
				return windowDelta, connErrorf(ErrCodeProtocol, "SETTINGS_ENABLE_PUSH must be 0 or 1, got %d", p.Value)
			}
			s.EnablePush = p.Value == 1
		case SettingMaxConcurrentStreams:
			s.MaxConcurrentStreams = p.Value
		case SettingInitialWindowSize:
			if p.Value > 1<<31-1 {
				return windowDelta, connErrorf(ErrCodeFlowControl, "SETTINGS_INITIAL_WINDOW_SIZE %d exceeds max", p.Value)
			}
			windowDelta += int64(p.Value) - int64(s.InitialWindowSize)
			s.InitialWindowSize = p.Value
		case SettingMaxFrameSize:
			if p.Value < DefaultMaxFrameSize || p.Value > 1<<24-1 {
				return windowDelta, connErrorf(ErrCodeProtocol, "SETTINGS_MAX_FRAME_SIZE %d out of range", p.Value)
			}
			s.MaxFrameSize = p.Value
		case SettingMaxHeaderListSize:
			s.MaxHeaderListSize = p.Value
		}
	}
	return windowDelta, nil
}
