// Automated moderation pipeline for chat workspaces.
//
// This package tree contains a per-message moderation pipeline: each inbound chat message is admitted (or skipped) by the ingress filter, checked against the workspace's rules by a two-tier detector (a forbidden-term keyword pass, then an LLM classifier), mapped to an enforcement action by the policy resolver, enforced against the chat platform, and recorded in the audit log. Workspace rules and overrides live in the settings store and are served to the pipeline through an in-memory registry.
//
// The subpackages are layered roughly bottom-up: `verdict`, `event` and `settings` hold shared types; `keyword`, `detect` and `policy` are the decision logic; `engine` orchestrates a message through all stages; `countstore`, `cachestore`, `flagstore` and `auditlog` are persistence; `discord` adapts a real chat platform; `admin` is the configuration surface.
//
// See `cmd/warden` for a daemon built on this package.
package automod
