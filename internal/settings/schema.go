package settings

// documentSchema constrains stored service settings documents.
const documentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["service_id"],
  "properties": {
    "service_id": {"type": "string", "minLength": 1},
    "regression": {
      "type": "object",
      "properties": {
        "active_timespan_minutes": {"type": "integer", "minimum": 0},
        "baseline_timespan_minutes": {"type": "integer", "minimum": 0},
        "min_volume_threshold": {"type": "integer", "minimum": 0},
        "min_error_rate_threshold": {"type": "number", "minimum": 0, "maximum": 1},
        "regression_delta": {"type": "number", "minimum": 0},
        "critical_regression_delta": {"type": "number", "minimum": 0},
        "critical_exception_types": {"type": "array", "items": {"type": "string"}}
      }
    },
    "reliability": {
      "type": "object",
      "properties": {
        "weights": {
          "type": "object",
          "required": ["new_event_score", "severe_new_event_score", "critical_regression_score", "regression_score", "score_weight"],
          "properties": {
            "new_event_score": {"type": "number", "minimum": 0},
            "severe_new_event_score": {"type": "number", "minimum": 0},
            "critical_regression_score": {"type": "number", "minimum": 0},
            "regression_score": {"type": "number", "minimum": 0},
            "score_weight": {"type": "number", "minimum": 0}
          }
        },
        "thresholds": {
          "type": "object",
          "properties": {
            "warning": {"type": "number", "minimum": 0, "maximum": 100},
            "critical": {"type": "number", "minimum": 0, "maximum": 100}
          }
        },
        "postfixes": {
          "type": "object",
          "properties": {
            "ok": {"type": "string"},
            "warning": {"type": "string"},
            "critical": {"type": "string"}
          }
        }
      }
    },
    "slowdown": {
      "type": "object",
      "properties": {
        "active_invocations_threshold": {"type": "integer", "minimum": 0},
        "baseline_invocations_threshold": {"type": "integer", "minimum": 0},
        "over_avg_slowing_percentage": {"type": "number", "minimum": 0},
        "over_avg_critical_percentage": {"type": "number", "minimum": 0},
        "std_dev_factor": {"type": "number", "minimum": 0},
        "min_delta_threshold_ms": {"type": "number", "minimum": 0}
      }
    },
    "key_tiers": {"type": "array", "items": {"type": "string", "minLength": 1}},
    "cost_factors": {"type": "object", "additionalProperties": {"type": "number", "minimum": 0}}
  }
}`
