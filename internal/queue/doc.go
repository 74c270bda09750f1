// Package queue implements the bounded FIFO retry queue that holds routing
// requests while every provider is circuit-open. A background loop expires
// entries past their deadline and redispatches the oldest entry once a
// provider recovers.
package queue
