// Package schedule holds the pure delivery scheduling policies: weekday
// calendar search, the order creation window, delivery quotas, subscription
// lifecycle transitions and the per-subscription decision used by the
// scheduler runner. Nothing here reads the clock or performs I/O; every
// function takes now explicitly.
package schedule
