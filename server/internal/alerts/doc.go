// Package alerts implements the rule evaluation engine and webhook delivery
// for monitor-point alerting. Rules are "field op value" tests evaluated
// against every board update under the rule's prefix; webhooks are delivered
// to Teams, Slack or generic HTTP targets.
package alerts
