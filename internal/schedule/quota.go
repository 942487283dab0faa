package schedule

// TotalAllowed is the number of deliveries a subscription term permits
func TotalAllowed(deliveryDaysCount, period int) int {
	if deliveryDaysCount <= 0 || period <= 0 {
		return 0
	}
	return deliveryDaysCount * period
}

// IsExhausted reports whether no further orders may be created
func IsExhausted(deliveryDaysCount, period, ordersCreatedSoFar int) bool {
	return ordersCreatedSoFar >= TotalAllowed(deliveryDaysCount, period)
}
