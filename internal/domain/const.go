package domain

const (
	// Blockchain constants
	ETHEREUM_ZERO_ADDRESS = "0x0000000000000000000000000000000000000000"

	// ERC721 transfer event: Transfer(address,address,uint256)
	TRANSFER_EVENT_SIGNATURE = "Transfer(address,address,uint256)"
)
