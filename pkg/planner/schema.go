package planner

// planSchema validates the JSON document the model must return before it is
// accepted as a plan. Anything that fails validation is ErrPlanningFailed.
const planSchema = `{
	"type": "object",
	"required": ["steps"],
	"properties": {
		"steps": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["ordinal", "worker_name"],
				"properties": {
					"ordinal": {"type": "integer", "minimum": 1},
					"worker_name": {"type": "string", "minLength": 1},
					"description": {"type": "string"},
					"parameters": {
						"type": "object",
						"additionalProperties": {"type": "string"}
					},
					"requires_approval": {"type": "boolean"},
					"gate_condition": {
						"type": "string",
						"enum": ["none", "pre_check", "post_validation"]
					},
					"new_worker": {
						"type": "object",
						"required": ["name", "description"],
						"properties": {
							"name": {"type": "string", "minLength": 1},
							"description": {"type": "string", "minLength": 1},
							"capabilities": {
								"type": "array",
								"items": {"type": "string"}
							}
						}
					}
				}
			}
		}
	}
}`
