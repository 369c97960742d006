/*
Package config holds the flat key->value configuration shared by all
service layers.

The map is open-ended: each layer interprets the keys it understands and
passes the rest through, including across RPC boundaries. Values are
strings, unsigned numbers or booleans; size-valued keys also accept
human-readable strings like "512MB". Loaders exist for TOML, JSON and
YAML files, whose nested tables flatten into "/"-separated keys.
*/
package config
