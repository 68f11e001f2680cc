package queue

// Redis key naming conventions for step queue data.
// All keys are prefixed with "stepflow:" to avoid collisions.

const keyPrefix = "stepflow:"

// queueKey returns the Sorted Set key for a queue, scored by visible-at unix millis: stepflow:queue:{name}
func queueKey(name string) string { return keyPrefix + "queue:" + name }

// messageKeyPrefix prefixes the Hash key of every message: stepflow:msg:{id}
const messageKeyPrefix = keyPrefix + "msg:"

func messageKey(id string) string { return messageKeyPrefix + id }

// deadLetterKey returns the List key holding dead letters for a queue: stepflow:dlq:{name}
func deadLetterKey(name string) string { return keyPrefix + "dlq:" + name }
