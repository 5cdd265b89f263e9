// Package config loads the process configuration for avatls tools.
//
// Configuration is YAML with ${VAR} and ${VAR:-default} environment
// substitution. It selects the security provider, the external store that
// holds named TLS configurations, and the observability stack:
//
//	provider:
//	  name: GoTLS
//	  fips: false
//	  validationTimeout: 5s
//	store:
//	  type: vault
//	  vault:
//	    address: ${VAULT_ADDR:-http://127.0.0.1:8200}
//	    token: ${VAULT_TOKEN}
//	  cache:
//	    type: redis
//	    ttl: 1m
//	    redis:
//	      url: redis://localhost:6379/0
//	observability:
//	  logging:
//	    level: info
//	  tracing:
//	    enabled: true
//	    otlpEndpoint: localhost:4317
package config
