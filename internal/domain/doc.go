// Package domain defines the closed-group data model and the contracts
// between components. It holds plain types (wire/state) and interfaces only;
// behaviour lives in the protocol, services and store packages.
package domain
