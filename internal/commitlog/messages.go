package commitlog

import "fmt"

// The fixed commit message templates of spec §4.4. The "tx:<id>" suffix is
// appended only when txID is non-empty.

func withTxSuffix(msg, txID string) string {
	if txID == "" {
		return msg
	}
	return fmt.Sprintf("%s tx:%s", msg, txID)
}

// InsertMessage renders "[INSERT] t/k tx:<id>".
func InsertMessage(table, key, txID string) string {
	return withTxSuffix(fmt.Sprintf("[INSERT] %s/%s", table, key), txID)
}

// UpdateMessage renders "[UPDATE] t/k tx:<id>".
func UpdateMessage(table, key, txID string) string {
	return withTxSuffix(fmt.Sprintf("[UPDATE] %s/%s", table, key), txID)
}

// DeleteMessage renders "[DELETE] t/k tx:<id>".
func DeleteMessage(table, key, txID string) string {
	return withTxSuffix(fmt.Sprintf("[DELETE] %s/%s", table, key), txID)
}

// CreateTableMessage renders "[CREATE TABLE] t tx:<id>".
func CreateTableMessage(table, txID string) string {
	return withTxSuffix(fmt.Sprintf("[CREATE TABLE] %s", table), txID)
}

// DropTableMessage renders "[DROP TABLE] t tx:<id>".
func DropTableMessage(table, txID string) string {
	return withTxSuffix(fmt.Sprintf("[DROP TABLE] %s", table), txID)
}

// MergeMessage renders "[COMMIT] Transaction <id> merged to main".
func MergeMessage(txID string) string {
	return fmt.Sprintf("[COMMIT] Transaction %s merged to main", txID)
}
