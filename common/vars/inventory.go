package vars

import (
	"ration-kiosk/model"
	"sync/atomic"
	"unsafe"
)

// inventoryDataPtr holds a pointer to the current inventory snapshot.
// This approach allows for lock-free reads with atomic updates.
var inventoryDataPtr unsafe.Pointer

// GetInventory returns the current inventory snapshot.
// This operation is lock-free and safe for concurrent access.
func GetInventory() []model.InventoryItemResponse {
	ptr := atomic.LoadPointer(&inventoryDataPtr)
	if ptr == nil {
		return nil
	}
	return *(*[]model.InventoryItemResponse)(ptr)
}

// SetInventory atomically replaces the inventory snapshot.
// It creates a copy of the input data to ensure consistency.
// Pass nil or empty slice to clear the snapshot.
func SetInventory(items []model.InventoryItemResponse) {
	var ptr unsafe.Pointer

	if len(items) > 0 {
		itemsCopy := make([]model.InventoryItemResponse, len(items))
		copy(itemsCopy, items)
		ptr = unsafe.Pointer(&itemsCopy)
	}

	atomic.StorePointer(&inventoryDataPtr, ptr)
}

func init() {
	atomic.StorePointer(&inventoryDataPtr, nil)
}
