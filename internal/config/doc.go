// Package config provides configuration for the webmark client: the
// annotation-service endpoint, cross-context call bounds, popup polling
// cadence, and per-host capture rules.
//
// Configuration is an explicit Config value passed into each component
// constructor. There is no package-level state: the three execution
// contexts have independent lifecycles, and ambient configuration would
// silently survive a coordinator restart that the design requires us to
// treat as a cold start.
package config
