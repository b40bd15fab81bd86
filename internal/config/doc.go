// Package config loads tether client and server configuration from YAML.
//
// Files support ${VAR} syntax for environment variable interpolation.
// A minimal client file:
//
//	client:
//	  url: wss://gateway.example.com/ws
//	  headers:
//	    Authorization: Bearer ${TETHER_TOKEN}
//	retry:
//	  strategy: backoff
//	  max_attempts: 10
//
// Builders turn a loaded Config into transport dialers and servers and a
// connection.RetryStrategy.
package config
