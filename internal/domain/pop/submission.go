// Package pop defines the proof-of-play domain model: the submission batch
// sent by a display player and the individual play events it carries.
package pop

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// EndTimeLayout is the naive ISO-8601 form players emit, millisecond
// precision, no zone. Players report device-local time, so the value is
// never converted to another zone; it is preserved verbatim.
const EndTimeLayout = "2006-01-02T15:04:05.000"

// parseLayout omits the fractional part so inputs with shorter fractions
// (or none) still parse; time.Parse accepts trailing fractional seconds.
const parseLayout = "2006-01-02T15:04:05"

// PlayEvent is a single proof-of-play record. It has no identity of its own
// until storage assigns one on insert.
type PlayEvent struct {
	DisplayUnitID      uint64
	FrameID            uint64
	ActiveScreensCount uint32
	AdCopyID           uint64
	// CampaignID arrives on the wire but is not persisted; the schedule id
	// is the billable reference.
	CampaignID   uint64
	ScheduleID   uint64
	Impressions  uint32
	Interactions uint32
	// EndTime is naive device-local time. Only the wall-clock reading
	// matters; the Location attached by parsing is ignored.
	EndTime      time.Time
	DurationMs   uint32
	ServiceName  string
	ServiceValue string
	// ExtraData is the optional free-form JSON payload added by newer
	// players. nil means the field was absent.
	ExtraData json.RawMessage
}

// Submission is the unit of authentication and atomicity: one API key, one
// player, an ordered batch of play events persisted all-or-nothing.
type Submission struct {
	APIKey   string      `json:"api_key" validate:"required"`
	PlayerID uint64      `json:"player_id"`
	Events   []PlayEvent `json:"pop" validate:"min=1"`
}

// EndTimeMillis returns the end-of-play timestamp as integer milliseconds
// since the Unix epoch, treating the naive reading as UTC. This is the
// persisted representation.
func (e PlayEvent) EndTimeMillis() int64 {
	return e.EndTime.UnixMilli()
}

// ExtraDataText returns the serialized form stored in the extra_data
// column. An absent payload stores the empty string.
func (e PlayEvent) ExtraDataText() string {
	if e.ExtraData == nil {
		return ""
	}
	return string(e.ExtraData)
}

// verbosePlayEvent is the field-named wire form. The aliases (n_screens,
// duration, ext1, ext2) follow the player protocol.
type verbosePlayEvent struct {
	DisplayUnitID      uint64          `json:"display_unit_id"`
	FrameID            uint64          `json:"frame_id"`
	ActiveScreensCount uint32          `json:"n_screens"`
	AdCopyID           uint64          `json:"ad_copy_id"`
	CampaignID         uint64          `json:"campaign_id"`
	ScheduleID         uint64          `json:"schedule_id"`
	Impressions        uint32          `json:"impressions"`
	Interactions       uint32          `json:"interactions"`
	EndTime            string          `json:"end_time"`
	DurationMs         uint32          `json:"duration"`
	ServiceName        string          `json:"ext1"`
	ServiceValue       string          `json:"ext2"`
	ExtraData          json.RawMessage `json:"extra_data,omitempty"`
}

// UnmarshalJSON accepts both wire forms of a play event: the compact
// positional 13-element array and the verbose field-named object. Both
// decode to the identical PlayEvent.
func (e *PlayEvent) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("play event: empty value")
	}

	switch trimmed[0] {
	case '[':
		return e.unmarshalPositional(trimmed)
	case '{':
		return e.unmarshalVerbose(trimmed)
	default:
		return fmt.Errorf("play event: expected array or object, got %q", trimmed[0])
	}
}

// Positional order: display_unit_id, frame_id, n_screens, ad_copy_id,
// campaign_id, schedule_id, impressions, interactions, end_time, duration,
// ext1, ext2, extra_data.
func (e *PlayEvent) unmarshalPositional(data []byte) error {
	var fields []json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("play event: %w", err)
	}
	if len(fields) != 13 {
		return fmt.Errorf("play event: expected 13 positional fields, got %d", len(fields))
	}

	var endTime string
	targets := []any{
		&e.DisplayUnitID,
		&e.FrameID,
		&e.ActiveScreensCount,
		&e.AdCopyID,
		&e.CampaignID,
		&e.ScheduleID,
		&e.Impressions,
		&e.Interactions,
		&endTime,
		&e.DurationMs,
		&e.ServiceName,
		&e.ServiceValue,
	}
	for i, target := range targets {
		if err := json.Unmarshal(fields[i], target); err != nil {
			return fmt.Errorf("play event: field %d: %w", i, err)
		}
	}
	e.ExtraData = fields[12]

	parsed, err := parseEndTime(endTime)
	if err != nil {
		return err
	}
	e.EndTime = parsed
	return nil
}

func (e *PlayEvent) unmarshalVerbose(data []byte) error {
	var wire verbosePlayEvent
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("play event: %w", err)
	}

	parsed, err := parseEndTime(wire.EndTime)
	if err != nil {
		return err
	}

	*e = PlayEvent{
		DisplayUnitID:      wire.DisplayUnitID,
		FrameID:            wire.FrameID,
		ActiveScreensCount: wire.ActiveScreensCount,
		AdCopyID:           wire.AdCopyID,
		CampaignID:         wire.CampaignID,
		ScheduleID:         wire.ScheduleID,
		Impressions:        wire.Impressions,
		Interactions:       wire.Interactions,
		EndTime:            parsed,
		DurationMs:         wire.DurationMs,
		ServiceName:        wire.ServiceName,
		ServiceValue:       wire.ServiceValue,
		ExtraData:          wire.ExtraData,
	}
	return nil
}

// MarshalJSON emits the verbose field-named form.
func (e PlayEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(verbosePlayEvent{
		DisplayUnitID:      e.DisplayUnitID,
		FrameID:            e.FrameID,
		ActiveScreensCount: e.ActiveScreensCount,
		AdCopyID:           e.AdCopyID,
		CampaignID:         e.CampaignID,
		ScheduleID:         e.ScheduleID,
		Impressions:        e.Impressions,
		Interactions:       e.Interactions,
		EndTime:            e.EndTime.Format(EndTimeLayout),
		DurationMs:         e.DurationMs,
		ServiceName:        e.ServiceName,
		ServiceValue:       e.ServiceValue,
		ExtraData:          e.ExtraData,
	})
}

func parseEndTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("play event: end_time is required")
	}
	parsed, err := time.Parse(parseLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("play event: end_time %q: %w", value, err)
	}
	return parsed, nil
}
