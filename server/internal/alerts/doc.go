// Package alerts evaluates stake alert rules on every accepted stake and
// delivers webhook notifications when a rule fires or resolves.
package alerts
