/*
Package config provides configuration management for a roset mount process,
with YAML file and environment variable sources.

# Configuration Sections

Global:
- Log level and file
- Metrics port

Mount:
- Mount ID, tenant ID, mount point
- Read-only / allow-other flags
- Read-ahead size, uid/gid for the FUSE mount

API:
- Base URL of the remote tenant-scoped tree API
- Bearer token file path
- Request timeout, signed-URL refresh buffer, idle connection limit

Cache:
- Entry caps for the node and children caches
- TTLs for mutable metadata and negative lookups

Staging:
- Staging directory and durability mode (sync / async / sync_on_fsync)
- Multipart part size, parallelism, worker count, queue capacity
- Max attempts before a job moves to the dead-letter directory

Network:
- Retry backoff parameters
- Circuit breaker thresholds around the API client

Supervisor:
- Secrets directory, health check interval, probe timeout
- Restart backoff bounds, crash-loop threshold and window

Monitoring:
- Metrics and logging toggles

# Usage

	cfg := config.NewDefault()

	if err := cfg.LoadFromFile("/etc/roset/config.yaml"); err != nil {
		log.Fatal(err)
	}
	if err := cfg.LoadFromEnv(); err != nil {
		log.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

Configuration file format:

	mount:
	  mount_id: mnt-1
	  tenant_id: tenant-a
	  mount_point: /mnt/roset
	api:
	  base_url: https://api.example.com
	  bearer_token_file: /var/lib/roset/secrets/token
	staging:
	  directory: /var/lib/roset/staging
	  durability: async
	  part_size: 20971520
	  max_parallel_parts: 5

Environment variables (ROSET_*) overlay the file, and take precedence:

	ROSET_LOG_LEVEL=DEBUG
	ROSET_MOUNT_ID=mnt-1
	ROSET_TENANT_ID=tenant-a
	ROSET_MOUNT_POINT=/mnt/roset
	ROSET_READ_ONLY=true
	ROSET_API_BASE_URL=https://api.example.com
	ROSET_API_BEARER_TOKEN_FILE=/var/lib/roset/secrets/token
	ROSET_STAGING_DIR=/var/lib/roset/staging
	ROSET_DURABILITY=async

# Validation

Validate checks that the mount ID, mount point, and API base URL are set,
that the durability mode and log level are one of the known enum values,
and that the staging part size and parallelism are positive.

# File Permissions

SaveToFile creates parent directories with mode 0750 and writes the config
file itself with mode 0600, since the bearer token file path and secrets
directory it references are sensitive.
*/
package config
