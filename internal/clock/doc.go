// Package clock abstracts the timer operations used by the supervisor's
// restart schedule so tests can advance time deterministically.
package clock
