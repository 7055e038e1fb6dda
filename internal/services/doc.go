// Package services contains the application service layer between the HTTP
// transport and the trust managers. Services translate manager results into
// response structures carrying a trace ID, so handlers stay thin.
package services
