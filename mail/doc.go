// Package mail defines the outbound delivery capability for verification
// links and login codes, with interchangeable backends picked at
// configuration time.
package mail
