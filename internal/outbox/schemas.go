package outbox

import "example.com/challengeengine/internal/events"

const activityStartedSchema = `{
  "type": "object",
  "title": "ActivityStarted",
  "properties": {
    "activity_id": {"type": "string"},
    "user_id": {"type": "string"},
    "activity_type": {"type": "string"},
    "title": {"type": "string"},
    "started_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "user_id", "activity_type", "started_at"]
}`

const positionUpdatedSchema = `{
  "type": "object",
  "title": "PositionUpdated",
  "properties": {
    "activity_id": {"type": "string"},
    "user_id": {"type": "string"},
    "longitude": {"type": "number"},
    "latitude": {"type": "number"},
    "elevation": {"type": "number"},
    "speed": {"type": "number"},
    "timestamp": {"type": "string", "format": "date-time"},
    "sequence": {"type": "integer"}
  },
  "required": ["activity_id", "user_id", "longitude", "latitude", "timestamp", "sequence"]
}`

const activityEndedSchema = `{
  "type": "object",
  "title": "ActivityEnded",
  "properties": {
    "activity_id": {"type": "string"},
    "user_id": {"type": "string"},
    "activity_type": {"type": "string"},
    "started_at": {"type": "string", "format": "date-time"},
    "ended_at": {"type": "string", "format": "date-time"},
    "distance": {"type": "number"},
    "duration": {"type": "number"},
    "elevation_gain": {"type": "number"},
    "elevation_loss": {"type": "number"},
    "average_speed": {"type": "number"},
    "max_speed": {"type": "number"},
    "pace": {"type": "number"}
  },
  "required": ["activity_id", "user_id", "activity_type", "started_at", "ended_at", "distance", "duration"]
}`

const newChallengeSchema = `{
  "type": "object",
  "title": "ChallengeCreated",
  "properties": {
    "challenge_id": {"type": "string"},
    "creator_id": {"type": "string"},
    "title": {"type": "string"},
    "type": {"type": "string"},
    "activity_type": {"type": "string"},
    "goal_value": {"type": "number"},
    "goal_unit": {"type": "string"},
    "start_date": {"type": "string", "format": "date-time"},
    "end_date": {"type": "string", "format": "date-time"}
  },
  "required": ["challenge_id", "creator_id", "type", "goal_value", "start_date", "end_date"]
}`

const challengeJoinedSchema = `{
  "type": "object",
  "title": "ChallengeJoined",
  "properties": {
    "challenge_id": {"type": "string"},
    "user_id": {"type": "string"},
    "joined_at": {"type": "string", "format": "date-time"}
  },
  "required": ["challenge_id", "user_id", "joined_at"]
}`

const challengeProgressUpdatedSchema = `{
  "type": "object",
  "title": "ChallengeProgressUpdated",
  "properties": {
    "challenge_id": {"type": "string"},
    "user_id": {"type": "string"},
    "activity_id": {"type": "string"},
    "contribution": {"type": "number"},
    "current_value": {"type": "number"},
    "goal_value": {"type": "number"},
    "completed": {"type": "boolean"},
    "updated_at": {"type": "string", "format": "date-time"}
  },
  "required": ["challenge_id", "user_id", "activity_id", "contribution", "current_value", "completed"]
}`

const challengeCompletedSchema = `{
  "type": "object",
  "title": "ChallengeCompleted",
  "properties": {
    "challenge_id": {"type": "string"},
    "user_id": {"type": "string"},
    "completed_at": {"type": "string", "format": "date-time"},
    "reward_points": {"type": "integer"},
    "reward_badge": {"type": "string"},
    "achievement_id": {"type": "string"}
  },
  "required": ["challenge_id", "user_id", "completed_at", "reward_points"]
}`

var schemaCatalog = map[string]string{
	events.TopicActivityStarted:          activityStartedSchema,
	events.TopicPositionUpdated:          positionUpdatedSchema,
	events.TopicActivityEnded:            activityEndedSchema,
	events.TopicNewChallenge:             newChallengeSchema,
	events.TopicChallengeJoined:          challengeJoinedSchema,
	events.TopicChallengeProgressUpdated: challengeProgressUpdatedSchema,
	events.TopicChallengeCompleted:       challengeCompletedSchema,
}
