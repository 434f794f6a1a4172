// Package relay provides request/reply semantics over the async device
// transport. HTTP handlers call into a device and block for the correlated
// reply; devices answer whenever they answer, and late replies are dropped.
package relay
