package scene

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/icarotours/panoapi/internal/validate"
)

// DefaultHotspotClass is applied to navigation hotspots created without an
// explicit css class; the stock viewer styles it as a move-scene marker.
const DefaultHotspotClass = "moveScene"

// ValidationError reports payload shape violations with one message per
// offending field.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Fields, "; ")
}

// ViewerScene is the per-scene shape consumed directly by the panorama
// viewer widget.
type ViewerScene struct {
	SceneKey string             `json:"scene_key"`
	Title    string             `json:"title"`
	ImageURL string             `json:"image_url"`
	Pitch    float64            `json:"pitch"`
	Yaw      float64            `json:"yaw"`
	HFOV     float64            `json:"hfov"`
	Hotspots map[string]Hotspot `json:"hotspots"`
}

// ViewerDocument is the nested document served to the viewer: scenes keyed
// by their numeric id rendered as a string.
type ViewerDocument map[string]ViewerScene

// SceneInput is a partial scene write. Pointer fields distinguish omitted
// from zero: omitted fields preserve the stored value on update. A non-nil
// Hotspots map (even empty) replaces the stored map wholesale; nil leaves
// it untouched.
type SceneInput struct {
	ID       *int64             `json:"id,omitempty"`
	SceneKey *string            `json:"scene_key,omitempty"`
	Title    *string            `json:"title,omitempty"`
	ImageURL *string            `json:"image_url,omitempty"`
	Pitch    *float64           `json:"pitch,omitempty"`
	Yaw      *float64           `json:"yaw,omitempty"`
	HFOV     *float64           `json:"hfov,omitempty"`
	Hotspots map[string]Hotspot `json:"hotspots,omitempty"`
}

// ToViewerDocument converts repository scenes into the viewer document.
// Scenes with no hotspots translate to an empty map, never null.
func ToViewerDocument(scenes []*Scene) ViewerDocument {
	doc := make(ViewerDocument, len(scenes))
	for _, s := range scenes {
		doc[strconv.FormatInt(s.ID, 10)] = ToViewerScene(s)
	}
	return doc
}

// ToViewerScene converts a single scene into its viewer shape. Legacy rows
// persisted before scene_key existed fall back to the numeric id.
func ToViewerScene(s *Scene) ViewerScene {
	hotspots := s.Hotspots
	if hotspots == nil {
		hotspots = map[string]Hotspot{}
	}
	sceneKey := s.SceneKey
	if sceneKey == "" {
		sceneKey = strconv.FormatInt(s.ID, 10)
	}
	return ViewerScene{
		SceneKey: sceneKey,
		Title:    s.Title,
		ImageURL: s.ImageURL,
		Pitch:    s.Pitch,
		Yaw:      s.Yaw,
		HFOV:     s.HFOV,
		Hotspots: hotspots,
	}
}

// rawSceneInput mirrors SceneInput but defers hotspot decoding so the map
// can be validated entry by entry and absence can be told from {}.
type rawSceneInput struct {
	ID       *int64          `json:"id"`
	SceneKey *string         `json:"scene_key"`
	Title    *string         `json:"title"`
	ImageURL *string         `json:"image_url"`
	Pitch    *float64        `json:"pitch"`
	Yaw      *float64        `json:"yaw"`
	HFOV     *float64        `json:"hfov"`
	Hotspots json.RawMessage `json:"hotspots"`
}

// rawHotspot uses pointers to detect missing required angle fields.
type rawHotspot struct {
	Kind           *string  `json:"kind"`
	Pitch          *float64 `json:"pitch"`
	Yaw            *float64 `json:"yaw"`
	CSSClass       *string  `json:"css_class"`
	TextContent    *string  `json:"text_content"`
	TargetSceneKey *string  `json:"target_scene_key"`
}

// ParseSceneInput decodes and validates a single scene payload.
// Hotspot entries must match the info/custom discriminated shape; every
// violation is itemized in the returned ValidationError.
func ParseSceneInput(data []byte) (*SceneInput, error) {
	var raw rawSceneInput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid scene payload: %w", err)
	}
	return sceneInputFromRaw(&raw, "")
}

// FromInputDocument decodes a full viewer-shaped document into per-scene
// inputs keyed by the numeric scene id taken from the document keys.
func FromInputDocument(data []byte) (map[int64]*SceneInput, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid scene document: %w", err)
	}

	inputs := make(map[int64]*SceneInput, len(doc))
	var fields []string

	// Deterministic error ordering.
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			fields = append(fields, fmt.Sprintf("%s: scene key must be a numeric id", key))
			continue
		}
		var raw rawSceneInput
		if err := json.Unmarshal(doc[key], &raw); err != nil {
			fields = append(fields, fmt.Sprintf("%s: invalid scene object", key))
			continue
		}
		in, err := sceneInputFromRaw(&raw, key+".")
		if err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				fields = append(fields, verr.Fields...)
				continue
			}
			return nil, err
		}
		in.ID = &id
		inputs[id] = in
	}

	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}
	return inputs, nil
}

func sceneInputFromRaw(raw *rawSceneInput, prefix string) (*SceneInput, error) {
	in := &SceneInput{
		ID:       raw.ID,
		SceneKey: raw.SceneKey,
		Title:    raw.Title,
		Pitch:    raw.Pitch,
		Yaw:      raw.Yaw,
		HFOV:     raw.HFOV,
	}

	var fields []string

	if raw.ImageURL != nil {
		trimmed, err := validate.ImageURL(*raw.ImageURL)
		if err != nil {
			fields = append(fields, prefix+"image_url: "+err.Error())
		} else {
			in.ImageURL = &trimmed
		}
	}

	if len(raw.Hotspots) > 0 {
		// An omitted field preserves stored hotspots on update.
		hotspots, verr := ParseHotspots(raw.Hotspots, prefix+"hotspots")
		if verr != nil {
			fields = append(fields, verr.Fields...)
		} else {
			in.Hotspots = hotspots
		}
	}

	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}
	return in, nil
}

// ParseHotspots decodes and validates a hotspot map. The prefix names the
// field in error messages (e.g. "hotspots" or "5.hotspots").
func ParseHotspots(data json.RawMessage, prefix string) (map[string]Hotspot, *ValidationError) {
	var rawMap map[string]rawHotspot
	if err := json.Unmarshal(data, &rawMap); err != nil {
		return nil, &ValidationError{Fields: []string{prefix + ": must be an object keyed by hotspot key"}}
	}

	keys := make([]string, 0, len(rawMap))
	for k := range rawMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	hotspots := make(map[string]Hotspot, len(rawMap))
	var fields []string
	for _, key := range keys {
		raw := rawMap[key]
		at := fmt.Sprintf("%s.%s", prefix, key)
		before := len(fields)

		kind := HotspotCustom
		if raw.Kind != nil {
			kind = *raw.Kind
		}
		if kind != HotspotInfo && kind != HotspotCustom {
			fields = append(fields, fmt.Sprintf("%s.kind: must be %q or %q", at, HotspotInfo, HotspotCustom))
		}
		if raw.Pitch == nil {
			fields = append(fields, at+".pitch: required")
		}
		if raw.Yaw == nil {
			fields = append(fields, at+".yaw: required")
		}
		if kind == HotspotCustom && (raw.TargetSceneKey == nil || *raw.TargetSceneKey == "") {
			fields = append(fields, at+".target_scene_key: required for custom hotspots")
		}
		if len(fields) > before {
			continue
		}

		h := Hotspot{
			Kind:  kind,
			Pitch: *raw.Pitch,
			Yaw:   *raw.Yaw,
		}
		if raw.CSSClass != nil {
			h.CSSClass = *raw.CSSClass
		} else if kind == HotspotCustom {
			h.CSSClass = DefaultHotspotClass
		}
		if raw.TextContent != nil {
			h.TextContent = *raw.TextContent
		}
		if raw.TargetSceneKey != nil {
			h.TargetSceneKey = *raw.TargetSceneKey
		}
		hotspots[key] = h
	}

	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}
	return hotspots, nil
}
