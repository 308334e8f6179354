package common

// IdempotencyKeyHeader is the HTTP header carrying the idempotency key of a
// remote create, so a retried push never produces a second server row.
const IdempotencyKeyHeader = "Idempotency-Key"

// AppName names the XDG subdirectories and the idempotency namespace.
const AppName = "bizkeeper"
