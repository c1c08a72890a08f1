// Package dynamodb stores vector blocks as binary items in a DynamoDB table.
//
// The table needs a string partition key "index" and a number sort key
// "block". Each item carries the 4 KiB block image in the binary attribute
// "data" and its CRC32C in "crc". DynamoDB writes a single item atomically.
package dynamodb
