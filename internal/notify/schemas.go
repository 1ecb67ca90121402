package notify

const overlapDetectedSchema = `{
  "type": "object",
  "title": "OverlapDetected",
  "properties": {
    "recipient_id": {"type": "string"},
    "kind": {"type": "string", "const": "overlap"},
    "message": {"type": "string"},
    "detected_at": {"type": "string", "format": "date-time"},
    "payload": {
      "type": "object",
      "properties": {
        "planIdSelf": {"type": "string"},
        "planIdFriend": {"type": "string"},
        "distanceKm": {"type": "number"},
        "timeDeltaHours": {"type": "number"}
      },
      "required": ["planIdSelf", "planIdFriend", "distanceKm", "timeDeltaHours"],
      "additionalProperties": false
    }
  },
  "required": ["recipient_id", "kind", "message", "detected_at", "payload"],
  "additionalProperties": false
}`

const overlapRetiredSchema = `{
  "type": "object",
  "title": "OverlapRetired",
  "properties": {
    "recipient_id": {"type": "string"},
    "kind": {"type": "string", "const": "overlap"},
    "message": {"type": "string"},
    "retired_at": {"type": "string", "format": "date-time"},
    "payload": {
      "type": "object",
      "properties": {
        "planIdSelf": {"type": "string"},
        "planIdFriend": {"type": "string"},
        "distanceKm": {"type": "number"},
        "timeDeltaHours": {"type": "number"}
      },
      "required": ["planIdSelf", "planIdFriend", "distanceKm", "timeDeltaHours"],
      "additionalProperties": false
    }
  },
  "required": ["recipient_id", "kind", "message", "retired_at", "payload"],
  "additionalProperties": false
}`
