// Package store provides the external stores that hold named TLS
// configurations.
//
// Every store implements tlsconfig.Store. A store maps an alias to an Entry
// holding a shared property bag and optional per-direction overrides:
//
//	default:
//	  security-level: HIGH
//	aliases:
//	  payments:
//	    properties:
//	      protocol: TLSv1.3
//	    inbound:
//	      client-auth: need
//
// FileStore serves such a YAML document from disk and reloads it when it
// changes. VaultStore reads one KV v2 secret per alias. CachedStore puts an
// in-process or Redis cache in front of either.
package store
