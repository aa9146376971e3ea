package docs

// @title           Bus Tracker API
// @version         1.0
// @description     Real-time campus bus tracking relay. Driver apps stream location and trip events over the /ws WebSocket endpoint; this API is the REST read side exposing fleet status and per-bus location history.
// @termsOfService  http://swagger.io/terms/

// @contact.name   API Support
// @contact.url    http://www.swagger.io/support
// @contact.email  support@swagger.io

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:3000
// @BasePath  /
