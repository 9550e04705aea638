// Package httpapi is the JSON transport over the metering engine. It
// exposes exactly the engine's entry points (enforce, check, feature gate,
// snapshot, summary, subscription hooks) and renders business rejections in
// their wire shapes: limit_reached and feature_locked.
package httpapi
