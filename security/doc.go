// Package security builds the TLS configuration of the HTTP listener.
//
//	http:
//	  tls:
//	    cert_file: /etc/nodeflow/tls/cert.pem
//	    key_file: /etc/nodeflow/tls/key.pem
//	    client_ca_file: /etc/nodeflow/tls/ca.pem  # require client certificates
//
// Package tlstest generates throwaway certificates for tests.
package security
