// Short-lived cache of string values with a fixed TTL and explicit purging.
//
// Includes an interface and implementations using redis and in-process memory. The moderation pipeline caches each workspace's resolved audit channel here, and purges the entry when log channels are reconfigured.
package cachestore
