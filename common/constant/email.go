package constant

const EmailDispenseReceiptTemplate = `
Ration Dispense Receipt
------------------------------------------
Transaction ID: RSHOP-%d
Family ID: %d
Member ID: %d
Item: %s
Quantity: %s kg
Dispensed At: %s
------------------------------------------

This receipt was generated automatically by the ration kiosk.
`

const EmailDispenseFaultTemplate = `
Dispenser Fault Alert
------------------------------------------
Request ID: %s
Item: %s
Quantity: %s kg
Reason: %s
Reported At: %s
------------------------------------------

The dispenser reported a failure. Please inspect the machine before
serving the next family.
`
