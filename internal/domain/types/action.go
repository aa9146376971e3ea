package types

const (
	ActionLocationUpdate    = "bus_location_update"
	ActionTripStarted       = "trip_started"
	ActionTripEnded         = "trip_ended"
	ActionConnectionClosed  = "connection_closed"
	ActionStatusInitialized = "status_initialized"

	ActionDatabaseQueryFailed = "database_query_failed"
	ActionFeedPublishFailed   = "feed_publish_failed"
)
