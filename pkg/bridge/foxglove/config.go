package foxglove

// Channel ids are fixed so recorded layouts keep working between runs.
const (
	FrameChannelID     uint64 = 1
	TransformChannelID uint64 = 2
	MarkerChannelID    uint64 = 3
	LogChannelID       uint64 = 4
)

const frameSchema = `{
  "type": "object",
  "properties": {
    "frame": { "type": "integer" },
    "ts": { "type": "number" },
    "calibrated": { "type": "object", "additionalProperties": true },
    "bodies": { "type": "array" },
    "flysticks": { "type": "array" },
    "meatools": { "type": "array" },
    "mearefs": { "type": "array" },
    "markers": { "type": "array" },
    "hands": { "type": "array" },
    "humans": { "type": "array" },
    "inertials": { "type": "array" },
    "status": { "type": "object", "additionalProperties": true }
  },
  "required": ["frame"]
}`

const vector3Schema = `{"type":"object","properties":{"x":{"type":"number"},"y":{"type":"number"},"z":{"type":"number"}}}`

const quaternionSchema = `{"type":"object","properties":{"x":{"type":"number"},"y":{"type":"number"},"z":{"type":"number"},"w":{"type":"number"}}}`

const timeSchema = `{"type":"object","properties":{"sec":{"type":"integer"},"nsec":{"type":"integer"}}}`

const transformsSchema = `{
  "type": "object",
  "properties": {
    "transforms": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "timestamp": ` + timeSchema + `,
          "parent_frame_id": { "type": "string" },
          "child_frame_id": { "type": "string" },
          "translation": ` + vector3Schema + `,
          "rotation": ` + quaternionSchema + `
        }
      }
    }
  }
}`

const markerArraySchema = `{
  "type": "object",
  "properties": {
    "markers": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "header": { "type": "object", "properties": { "frame_id": { "type": "string" }, "stamp": ` + timeSchema + ` } },
          "ns": { "type": "string" },
          "id": { "type": "integer" },
          "type": { "type": "integer" },
          "action": { "type": "integer" },
          "pose": { "type": "object", "properties": { "position": ` + vector3Schema + `, "orientation": ` + quaternionSchema + ` } },
          "scale": ` + vector3Schema + `,
          "color": { "type": "object", "properties": { "r": { "type": "number" }, "g": { "type": "number" }, "b": { "type": "number" }, "a": { "type": "number" } } }
        }
      }
    }
  }
}`

const logSchema = `{
  "type": "object",
  "properties": {
    "timestamp": ` + timeSchema + `,
    "level": { "type": "integer" },
    "message": { "type": "string" },
    "name": { "type": "string" },
    "file": { "type": "string" },
    "line": { "type": "integer" }
  }
}`

type Config struct {
	WSAddr string
	Name   string
	// ParentFrameID is the room coordinate frame all poses refer to.
	ParentFrameID string
	// FramePrefix starts every child frame id, e.g. "dtrack/body/3".
	FramePrefix    string
	FrameTopic     string
	TransformTopic string
	MarkerTopic    string
	LogTopic       string
	LogName        string
	// MarkerSize is the sphere diameter for 3DOF markers in metres.
	MarkerSize float64
	SendBuf    int
}

func DefaultConfig() Config {
	return Config{
		WSAddr:         "127.0.0.1:8765",
		Name:           "dtrackd",
		ParentFrameID:  "room",
		FramePrefix:    "dtrack",
		FrameTopic:     "/dtrack/frame",
		TransformTopic: "/tf",
		MarkerTopic:    "/dtrack/markers",
		LogTopic:       "/dtrack/log",
		LogName:        "dtrack",
		MarkerSize:     0.02,
		SendBuf:        256,
	}
}

func (cfg Config) withDefaults() Config {
	def := DefaultConfig()
	if cfg.WSAddr == "" {
		cfg.WSAddr = def.WSAddr
	}
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.ParentFrameID == "" {
		cfg.ParentFrameID = def.ParentFrameID
	}
	if cfg.FramePrefix == "" {
		cfg.FramePrefix = def.FramePrefix
	}
	if cfg.FrameTopic == "" {
		cfg.FrameTopic = def.FrameTopic
	}
	if cfg.TransformTopic == "" {
		cfg.TransformTopic = def.TransformTopic
	}
	if cfg.MarkerTopic == "" {
		cfg.MarkerTopic = def.MarkerTopic
	}
	if cfg.LogTopic == "" {
		cfg.LogTopic = def.LogTopic
	}
	if cfg.LogName == "" {
		cfg.LogName = def.LogName
	}
	if cfg.MarkerSize <= 0 {
		cfg.MarkerSize = def.MarkerSize
	}
	if cfg.SendBuf <= 0 {
		cfg.SendBuf = def.SendBuf
	}
	return cfg
}
