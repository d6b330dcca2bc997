package config // package config loads application configuration from environment variables

import (
    "log"     // log is used to report configuration errors and halt execution
    "os"      // os provides access to environment variables
    "strconv" // strconv converts strings to other types
    "time"    // time parses duration-valued settings
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  The types reflect how the values are used in
// the application: strings for identifiers and secrets, durations for
// windows and cadences.
type Config struct {
    Env               string        // application environment (e.g. "dev", "prod")
    Port              string        // HTTP port to listen on
    KioskID           string        // identity of the kiosk this process drives
    LockerCount       int           // lockers provisioned for this kiosk on first start
    DBUser            string        // database username
    DBPass            string        // database password (optional)
    DBHost            string        // database host address
    DBPort            string        // database port number
    DBName            string        // database name
    JWTSecret         string        // secret used to sign staff JWTs
    StaffKeyHash      string        // bcrypt hash of the staff master key
    StaffTTLMin       int           // staff token time-to-live in minutes
    SessionWindow     time.Duration // how long a scan session stays live
    HeartbeatInterval time.Duration // cadence of WebSocket heartbeat envelopes
    AMQPURL           string        // broker URL for the locker.events queue (optional)
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
    return Config{
        Env:               must("APP_ENV"),      // environment (dev/test/prod)
        Port:              must("APP_PORT"),     // port to bind the HTTP server
        KioskID:           must("KIOSK_ID"),     // this kiosk's identity in the fleet
        LockerCount:       atoi(getenv("LOCKER_COUNT", "16")),
        DBUser:            must("DB_USER"),      // database user
        DBPass:            os.Getenv("DB_PASS"), // database password (empty allowed)
        DBHost:            must("DB_HOST"),      // database host
        DBPort:            must("DB_PORT"),      // database port
        DBName:            must("DB_NAME"),      // database name
        JWTSecret:         must("JWT_SECRET"),   // secret used for signing staff JWTs
        StaffKeyHash:      must("STAFF_KEY_HASH"),
        StaffTTLMin:       atoi(getenv("STAFF_TOKEN_TTL_MIN", "60")),
        SessionWindow:     parseDur(getenv("SESSION_WINDOW", "30s")),
        HeartbeatInterval: parseDur(getenv("WS_HEARTBEAT_INTERVAL", "15s")),
        AMQPURL:           firstNonEmpty(os.Getenv("RABBITMQ_URL"), os.Getenv("AMQP_URL")),
    }
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        log.Fatalf("missing required env var: %s", key)
    }
    return v
}

// getenv returns the variable's value or def when unset.
func getenv(key, def string) string {
    if v := os.Getenv(key); v != "" {
        return v
    }
    return def
}

func atoi(s string) int {
    i, _ := strconv.Atoi(s)
    return i
}

func parseDur(s string) time.Duration {
    d, err := time.ParseDuration(s)
    if err != nil {
        return time.Second
    }
    return d
}

func firstNonEmpty(vals ...string) string {
    for _, v := range vals {
        if v != "" {
            return v
        }
    }
    return ""
}
